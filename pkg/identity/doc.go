// Package identity carries the authenticated caller identity through request
// contexts.
//
// Authentication itself happens outside this repository; whatever sits in
// front of the service (API gateway, session layer, token validator) is
// responsible for producing an Identity and attaching it with WithIdentity.
// Everything downstream - the rbac guards, the audit pipeline, the security
// handlers - reads it back with FromContext and never re-validates
// credentials.
package identity
