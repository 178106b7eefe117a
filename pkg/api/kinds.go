package api

import "slices"

// KindSchema lists the params a resource kind accepts.
type KindSchema struct {
	Required []string
	Optional []string
	// Refs are params whose value is the ID of another step. The referenced
	// step must be listed in dependsOn.
	Refs []string
}

// Kinds maps every supported kind to its schema.
var Kinds = map[string]KindSchema{
	KindGlobalAddress: {},
	KindServerlessNEG: {
		Required: []string{"service"},
	},
	KindBackendService: {
		Optional: []string{"securityPolicy", "protocol"},
		Refs:     []string{"securityPolicy"},
	},
	KindBackendAttachment: {
		Required: []string{"backend", "neg"},
		Refs:     []string{"backend", "neg"},
	},
	KindURLMap: {
		Required: []string{"defaultService"},
		Refs:     []string{"defaultService"},
	},
	KindPathMatcher: {
		Required: []string{"urlMap", "defaultService", "pathRules"},
		Optional: []string{"hosts"},
		Refs:     []string{"urlMap", "defaultService"},
	},
	KindSSLCertificate: {
		Required: []string{"domains"},
	},
	KindHTTPSProxy: {
		Required: []string{"urlMap", "certificate"},
		Refs:     []string{"urlMap", "certificate"},
	},
	KindForwardingRule: {
		Required: []string{"address", "proxy"},
		Optional: []string{"ports"},
		Refs:     []string{"address", "proxy"},
	},
	KindSecurityPolicy: {
		Optional: []string{"description"},
	},
	KindSecurityPolicyRule: {
		Required: []string{"policy", "priority"},
		Optional: []string{"wafRule", "expression", "action", "description"},
		Refs:     []string{"policy"},
	},
	KindModelArmorTemplate: {
		Optional: []string{"location"},
	},
	KindServiceAccount: {
		Optional: []string{"displayName"},
	},
	KindIAMBinding: {
		Required: []string{"member", "role"},
		Optional: []string{"service"},
	},
}

func (k KindSchema) accepts(param string) bool {
	return slices.Contains(k.Required, param) || slices.Contains(k.Optional, param)
}
