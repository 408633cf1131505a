// Package observer keeps the set of listeners told about repository
// mutations and fans each change event out to them.
package observer
