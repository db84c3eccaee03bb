// Package loginwatch counts consecutive failed login attempts per key.
//
// Counts live in process memory for the lifetime of the service and are
// cleared on a successful login. The package never locks accounts out;
// it feeds the failure count into audit events so operators can alert
// on brute-force patterns.
package loginwatch
