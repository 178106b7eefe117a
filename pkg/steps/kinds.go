package steps

import (
	"fmt"
	"maps"
	"slices"

	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
)

const (
	loadBalancingScheme = "--load-balancing-scheme=EXTERNAL_MANAGED"
	defaultRuleAction   = "deny-403"
)

// modelArmorFilters are applied to every template unless overridden by
// flags with the same name.
var modelArmorFilters = map[string]string{
	"pi-and-jailbreak-filter-settings-enforcement":      "enabled",
	"pi-and-jailbreak-filter-settings-confidence-level": "medium-and-above",
	"malicious-uri-filter-settings-enforcement":         "enabled",
	"basic-config-filter-enforcement":                   "enabled",
}

var kinds = map[string]kind{
	api.KindGlobalAddress: {
		command: []string{"compute", "addresses"},
		scope:   global,
		createArgs: func(*target) ([]string, error) {
			return []string{"--ip-version=IPV4"}, nil
		},
		outputs: func(_ *target, doc map[string]any) engine.Outputs {
			return engine.Outputs{"address": stringField(doc, "address")}
		},
	},

	api.KindServerlessNEG: {
		command: []string{"compute", "network-endpoint-groups"},
		scope:   regional,
		createArgs: func(t *target) ([]string, error) {
			return []string{
				"--network-endpoint-type=serverless",
				"--cloud-run-service=" + t.params["service"],
			}, nil
		},
	},

	api.KindBackendService: {
		command: []string{"compute", "backend-services"},
		scope:   global,
		createArgs: func(t *target) ([]string, error) {
			args := []string{loadBalancingScheme}
			if p := t.params["protocol"]; p != "" {
				args = append(args, "--protocol="+p)
			}
			if t.params["securityPolicy"] != "" {
				policy, err := t.ref("securityPolicy")
				if err != nil {
					return nil, err
				}
				args = append(args, "--security-policy="+policy)
			}
			return args, nil
		},
	},

	api.KindURLMap: {
		command: []string{"compute", "url-maps"},
		scope:   global,
		createArgs: func(t *target) ([]string, error) {
			backend, err := t.ref("defaultService")
			if err != nil {
				return nil, err
			}
			return []string{"--default-service=" + backend}, nil
		},
	},

	api.KindSSLCertificate: {
		command: []string{"compute", "ssl-certificates"},
		scope:   global,
		createArgs: func(t *target) ([]string, error) {
			return []string{"--domains=" + t.params["domains"]}, nil
		},
	},

	api.KindHTTPSProxy: {
		command: []string{"compute", "target-https-proxies"},
		scope:   global,
		createArgs: func(t *target) ([]string, error) {
			urlMap, err := t.ref("urlMap")
			if err != nil {
				return nil, err
			}
			cert, err := t.ref("certificate")
			if err != nil {
				return nil, err
			}
			return []string{"--url-map=" + urlMap, "--ssl-certificates=" + cert}, nil
		},
	},

	api.KindForwardingRule: {
		command: []string{"compute", "forwarding-rules"},
		scope:   global,
		createArgs: func(t *target) ([]string, error) {
			address, err := t.ref("address")
			if err != nil {
				return nil, err
			}
			proxy, err := t.ref("proxy")
			if err != nil {
				return nil, err
			}
			ports := t.params["ports"]
			if ports == "" {
				ports = "443"
			}
			return []string{
				loadBalancingScheme,
				"--address=" + address,
				"--target-https-proxy=" + proxy,
				"--ports=" + ports,
			}, nil
		},
		outputs: func(_ *target, doc map[string]any) engine.Outputs {
			return engine.Outputs{"address": stringField(doc, "IPAddress")}
		},
	},

	api.KindSecurityPolicy: {
		command: []string{"compute", "security-policies"},
		createArgs: func(t *target) ([]string, error) {
			if d := t.params["description"]; d != "" {
				return []string{"--description=" + d}, nil
			}
			return nil, nil
		},
	},

	// Rules have no name of their own; the priority identifies them within
	// the policy.
	api.KindSecurityPolicyRule: {
		command:      []string{"compute", "security-policies", "rules"},
		resourceName: rulePriority,
		createName:   rulePriority,
		recorded:     []string{"policy"},
		scope: func(t *target) []string {
			return []string{"--security-policy=" + t.refs["policy"]}
		},
		createArgs: func(t *target) ([]string, error) {
			expr := t.params["expression"]
			if waf := t.params["wafRule"]; waf != "" {
				expr = fmt.Sprintf("evaluatePreconfiguredWaf('%s')", waf)
			}
			action := t.params["action"]
			if action == "" {
				action = defaultRuleAction
			}
			args := []string{"--expression=" + expr, "--action=" + action}
			if d := t.params["description"]; d != "" {
				args = append(args, "--description="+d)
			}
			return args, nil
		},
		outputs: func(t *target, _ map[string]any) engine.Outputs {
			return engine.Outputs{"priority": rulePriority(t)}
		},
	},

	api.KindModelArmorTemplate: {
		command: []string{"model-armor", "templates"},
		scope: func(t *target) []string {
			location := t.params["location"]
			if location == "" {
				location = t.env.region()
			}
			return []string{"--location=" + location}
		},
		createArgs: func(t *target) ([]string, error) {
			var args []string
			for _, k := range slices.Sorted(maps.Keys(modelArmorFilters)) {
				if _, overridden := t.flags[k]; overridden {
					continue
				}
				args = append(args, fmt.Sprintf("--%s=%s", k, modelArmorFilters[k]))
			}
			return args, nil
		},
	},

	api.KindServiceAccount: {
		command: []string{"iam", "service-accounts"},
		resourceName: func(t *target) string {
			return serviceAccountEmail(t.name, t.env.project())
		},
		createArgs: func(t *target) ([]string, error) {
			display := t.params["displayName"]
			if display == "" {
				display = t.name
			}
			return []string{"--display-name=" + display}, nil
		},
		outputs: func(t *target, doc map[string]any) engine.Outputs {
			email := stringField(doc, "email")
			if email == "" {
				email = serviceAccountEmail(t.name, t.env.project())
			}
			return engine.Outputs{"email": email}
		},
	},
}

// extraOutputs lists the outputs a kind publishes besides name.
var extraOutputs = map[string][]string{
	api.KindGlobalAddress:      {"address"},
	api.KindForwardingRule:     {"address"},
	api.KindServiceAccount:     {"email"},
	api.KindSecurityPolicyRule: {"policy", "priority"},
	api.KindBackendAttachment:  {"backend", "neg"},
	api.KindPathMatcher:        {"urlMap"},
	api.KindIAMBinding:         {"member", "role", "service"},
}

func serviceAccountEmail(name, project string) string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", name, project)
}

func rulePriority(t *target) string { return t.params["priority"] }
