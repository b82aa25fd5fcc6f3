package discovery

import "errors"

var (
	// ErrLookupFailed indicates a DNS query failed.
	ErrLookupFailed = errors.New("discovery: DNS lookup failed")

	// ErrNoEndpoints indicates a domain publishes no records for a service.
	ErrNoEndpoints = errors.New("discovery: no endpoints found")

	// ErrDNSSECValidationFailed indicates the upstream did not authenticate the answer.
	ErrDNSSECValidationFailed = errors.New("discovery: DNSSEC validation failed")

	// ErrInvalidPubKey indicates a malformed provider key record.
	ErrInvalidPubKey = errors.New("discovery: invalid public key")
)
