package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		startLevelPolicy(),
		resourceURLPolicy(),
	}
}

// startLevelPolicy rejects declared start levels that are not integers in [1, 1000].
func startLevelPolicy() Policy {
	return Policy{
		Name:        "start-level",
		Description: "Declared bundle start levels must be integers between 1 and 1000",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"bundle", "metadata"},
		Rego: `package installer.policies.startlevel

import rego.v1

deny contains violation if {
	level := input.resource.dictionary["bundle.startlevel"]
	not valid_level(level)
	violation := {
		"message": sprintf("start level %v of %s must be an integer between 1 and 1000", [level, input.resource.url]),
		"severity": "error",
	}
}

valid_level(level) if {
	is_number(level)
	in_range(level)
}

valid_level(level) if {
	is_string(level)
	in_range(to_number(trim_space(level)))
}

in_range(n) if {
	n == floor(n)
	n >= 1
	n <= 1000
}
`,
	}
}

// resourceURLPolicy requires resource URLs to carry a scheme.
func resourceURLPolicy() Policy {
	return Policy{
		Name:        "resource-url",
		Description: "Resource URLs must be absolute and carry a scheme",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"resource"},
		Rego: `package installer.policies.url

import rego.v1

deny contains violation if {
	not valid_url
	violation := {
		"message": sprintf("resource url %q must have the form <scheme>:<location>", [object.get(input.resource, "url", "")]),
		"severity": "error",
	}
}

valid_url if {
	regex.match("^[A-Za-z][A-Za-z0-9+.-]*:.+$", input.resource.url)
}
`,
	}
}
