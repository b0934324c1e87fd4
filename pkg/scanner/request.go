package scanner

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/velemoonkon/sonar/pkg/target"
)

// ErrInvalidSpec is wrapped by every request rejected before probing starts
var ErrInvalidSpec = errors.New("invalid scan spec")

// SpecError describes which request field was rejected
type SpecError struct {
	Field string
	Value string
	Err   error
}

func (e *SpecError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

// Unwrap exposes both ErrInvalidSpec and the underlying cause
func (e *SpecError) Unwrap() []error {
	return []error{ErrInvalidSpec, e.Err}
}

// Request is a scan request as received from a client (HTTP body, websocket
// message or CLI flags). Zero values mean "use the default".
type Request struct {
	Target      string `json:"target" validate:"required,max=253"`
	PortRange   string `json:"portRange,omitempty" validate:"omitempty,max=4096"`
	Wordlist    string `json:"wordlist,omitempty" validate:"omitempty,max=32"`
	Concurrency int    `json:"concurrency,omitempty"`
	Timeout     int    `json:"timeout,omitempty" validate:"omitempty,min=1,max=60000"`   // milliseconds
	TimeoutMs   int    `json:"timeoutMs,omitempty" validate:"omitempty,min=1,max=60000"` // alias of timeout
	ScanType    string `json:"scanType,omitempty" validate:"omitempty,oneof=tcp TCP"`
}

// PortSpec is a validated port scan
type PortSpec struct {
	Host      string
	PortRange string
	Ports     iter.Seq[int] // expanded lazily, never held as a slice
	Count     int           // number of ports Ports yields
	Timeout   time.Duration
	BatchSize int
}

// DNSSpec is a validated subdomain scan
type DNSSpec struct {
	Domain    string
	Tier      target.Tier
	Labels    []string // shared wordlist, never mutated
	BatchSize int
}

// Total returns the number of hostnames the scan probes
func (s DNSSpec) Total() int {
	return len(s.Labels)
}

// WithLabels replaces the tier wordlist with a custom label list
func (s DNSSpec) WithLabels(labels []string) DNSSpec {
	s.Labels = labels
	s.Tier = ""
	return s
}

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	// Report JSON field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// NewPortSpec validates req and builds a port scan using cfg for defaults and limits
func NewPortSpec(req Request, cfg Config) (PortSpec, error) {
	req.Target = strings.TrimSpace(req.Target)
	if err := checkRequest(req); err != nil {
		return PortSpec{}, err
	}
	if err := validate().Var(req.Target, "hostname_rfc1123|ip"); err != nil {
		return PortSpec{}, &SpecError{Field: "target", Value: req.Target, Err: errors.New("must be a hostname or IP address")}
	}

	portRange := strings.TrimSpace(req.PortRange)
	if portRange == "" {
		portRange = cfg.DefaultPortRange
	}
	ports, count, err := target.Ports(portRange)
	if err != nil {
		return PortSpec{}, &SpecError{Field: "portRange", Value: portRange, Err: err}
	}

	timeout := cfg.DefaultTimeout
	switch {
	case req.TimeoutMs > 0:
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	case req.Timeout > 0:
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}

	return PortSpec{
		Host:      req.Target,
		PortRange: portRange,
		Ports:     ports,
		Count:     count,
		Timeout:   timeout,
		BatchSize: batchSize(req.Concurrency, cfg.PortBatchSize, cfg.MaxConcurrency),
	}, nil
}

// NewDNSSpec validates req and builds a subdomain scan using cfg for defaults and limits
func NewDNSSpec(req Request, cfg Config) (DNSSpec, error) {
	req.Target = strings.TrimSuffix(strings.TrimSpace(req.Target), ".")
	if err := checkRequest(req); err != nil {
		return DNSSpec{}, err
	}
	if err := validate().Var(req.Target, "hostname_rfc1123"); err != nil {
		return DNSSpec{}, &SpecError{Field: "target", Value: req.Target, Err: errors.New("must be a domain name")}
	}

	tier := target.ParseTier(req.Wordlist)
	return DNSSpec{
		Domain:    strings.ToLower(req.Target),
		Tier:      tier,
		Labels:    target.Wordlist(tier),
		BatchSize: batchSize(req.Concurrency, cfg.DNSBatchSize, cfg.MaxConcurrency),
	}, nil
}

// checkRequest runs the struct tag rules and converts the first failure to a SpecError
func checkRequest(req Request) error {
	err := validate().Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &SpecError{Field: "request", Err: err}
	}
	fe := verrs[0]
	return &SpecError{
		Field: fe.Field(),
		Value: fmt.Sprint(fe.Value()),
		Err:   errors.New(ruleMessage(fe)),
	}
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}

// batchSize resolves a requested concurrency: non-positive falls back to the
// family default, anything above max is clamped
func batchSize(requested, familyDefault, maxConcurrency int) int {
	if familyDefault <= 0 {
		familyDefault = DefaultBatchSize
	}
	if requested <= 0 {
		requested = familyDefault
	}
	if maxConcurrency > 0 && requested > maxConcurrency {
		return maxConcurrency
	}
	return requested
}
