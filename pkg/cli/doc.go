// Package cli implements accessctl, an operator tool that answers
// permission questions against a YAML site fixture without a running
// server.
//
//	accessctl -f site.yaml check                 # run the fixture's checks
//	accessctl -f site.yaml check 7 110 WRITE     # one question
//	accessctl -f site.yaml explain 7 110 WRITE   # which grants decided it
//	accessctl -f site.yaml filter 7              # documents user 7 may read
//	accessctl -f site.yaml grants --folder 10
//	accessctl -f site.yaml watch                 # re-run checks on save
//	accessctl -f site.yaml token --user 7        # mint a local bearer token
//
// Ids on the command line and in output are the fixture's own ids.
package cli
