package solver

import (
	"strings"
)

// Challenge is one dns-01 validation handed over by the ACME client.
type Challenge struct {
	Domain         string
	ValidationName string // e.g. "_acme-challenge.example.com"
	Validation     string // TXT content
}

// ForDomain builds the challenge for a domain the way certbot hooks
// receive it in CERTBOT_DOMAIN. Domain is kept as given; a wildcard shares
// the validation name of its base domain.
func ForDomain(domain, validation string) Challenge {
	name := strings.TrimSuffix(strings.TrimPrefix(domain, "*."), ".")
	return Challenge{
		Domain:         domain,
		ValidationName: "_acme-challenge." + name,
		Validation:     validation,
	}
}

type Results struct {
	Performed []Challenge
	CleanedUp []Challenge
	Failures  []OperationResult
}

type OperationResult struct {
	Challenge Challenge
	Op        string
	Error     string
}
