// Package policy decides whether a typed resource may be installed.
//
// Policies are Rego modules evaluated with Open Policy Agent. Every policy
// exposes a deny set; each element is either a message string or an object
// with message and severity fields. A violation of severity error or critical
// rejects the resource, lower severities are reported as warnings.
//
// The input document has the form:
//
//	{
//	  "resource": {
//	    "url": "file:/srv/install/app.yaml",
//	    "digest": "...",
//	    "entity_id": "bundle:app",
//	    "type": "bundle",
//	    "version": "1.0.0",
//	    "priority": 0,
//	    "dictionary": {"bundle.startlevel": 20},
//	    "attributes": {}
//	  },
//	  "context": {"timestamp": "...", "operation": "admit"}
//	}
//
// Built-in policies check declared start levels and resource URLs. Extra
// policies are loaded from .rego or .json files:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/installer/policies"}); err != nil {
//	    return err
//	}
//	decision, err := eng.Admit(ctx, r)
package policy
