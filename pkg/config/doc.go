// Package config loads the installer configuration.
//
// The configuration is a single YAML document. Missing keys keep the values
// of Default, so a minimal file only names the watched directories:
//
//	data_dir: /var/lib/module-installer
//	watch:
//	  dirs: [/srv/install]
//
// A complete file:
//
//	data_dir: /var/lib/module-installer
//	interval: 5s
//	watch:
//	  dirs: [/srv/install, /opt/modules]
//	  priority: 100
//	  debounce: 500ms
//	remote:
//	  - ssh:
//	      host: files.example.com
//	      user: deploy
//	      private_key_path: /etc/module-installer/id_ed25519
//	    dirs: [/srv/install]
//	    poll_interval: 1m
//	snapshot:
//	  backend: sqlite        # file, sqlite or s3
//	  sqlite:
//	    keep: 20
//	policy:
//	  enabled: true
//	  paths: [/etc/module-installer/policies]
//	  disabled: [resource-url]
//	transform:
//	  extensions:
//	    .jar: bundle
//	  scripts:
//	    - path: /etc/module-installer/transform/manifest.star
//	      timeout: 2s
//	telemetry:
//	  logging:
//	    level: debug
//	    format: json
//	  metrics:
//	    enabled: true
//	    listen_address: ":9090"
//
// Relative snapshot paths are resolved against data_dir.
package config
