package api

const (
	StackFileSuffix = ".stack.yaml"

	KindGlobalAddress      = "global-address"
	KindServerlessNEG      = "serverless-neg"
	KindBackendService     = "backend-service"
	KindBackendAttachment  = "backend-attachment"
	KindURLMap             = "url-map"
	KindPathMatcher        = "path-matcher"
	KindSSLCertificate     = "ssl-certificate"
	KindHTTPSProxy         = "https-proxy"
	KindForwardingRule     = "forwarding-rule"
	KindSecurityPolicy     = "security-policy"
	KindSecurityPolicyRule = "security-policy-rule"
	KindModelArmorTemplate = "modelarmor-template"
	KindServiceAccount     = "service-account"
	KindIAMBinding         = "iam-binding"
)

// Stack is the *.stack.yaml format: a named set of provisioning steps.
type Stack struct {
	Name    string         `yaml:"name"`
	Context map[string]any `yaml:"context"`
	Steps   []StepConfig   `yaml:"steps"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// StepConfig defines one step within a stack.
type StepConfig struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"`
	Name      string            `yaml:"name"`
	DependsOn []string          `yaml:"dependsOn,omitempty"`
	Params    map[string]string `yaml:"params,omitempty"`
	// Flags are appended as --key=value to the create call.
	Flags map[string]string `yaml:"flags,omitempty"`
}

// Deployment is the stackctl.yaml format: the stacks to apply, in order.
type Deployment struct {
	Context map[string]any `yaml:"context"`
	Stacks  []StackRef     `yaml:"stacks"`

	// Set by the loader, not from YAML.
	Dir string `yaml:"-"`
}

// StackRef points at a stack file or a builtin stack.
type StackRef struct {
	Name    string         `yaml:"name"`
	File    string         `yaml:"file,omitempty"`
	Builtin string         `yaml:"builtin,omitempty"`
	Context map[string]any `yaml:"context,omitempty"`
}
