// Package git reads repository state of the project being bundled.
package git
