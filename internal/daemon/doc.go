// Package daemon provides the main orchestration for campusbelld.
package daemon
