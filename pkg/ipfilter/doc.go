// Package ipfilter implements per-tenant IP allowlisting. Allowlist
// entries are IPv4 CIDR ranges stored in PostgreSQL, cached in redis,
// and matched with 32-bit prefix arithmetic. A tenant with no entries
// is open; an entry list that exists must match or the request is
// blocked and a security event recorded.
package ipfilter
