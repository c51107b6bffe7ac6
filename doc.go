// Package main provides the entry point for the Tempora time tracking
// application. It initializes and runs a web server using the Fiber
// framework that lets teams record working time, manage roles and
// permissions, and provision accounts from LDAP or OIDC directories.
// The application uses gorm for data persistence.
package main
