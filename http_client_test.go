package main

import "testing"

func TestOutboundHTTPClientHasTimeout(t *testing.T) {
	if outboundHTTPClient == nil {
		t.Fatal("outboundHTTPClient must not be nil")
	}
	if outboundHTTPClient.Timeout != outboundAPITimeout {
		t.Fatalf("outboundHTTPClient timeout = %s, want %s", outboundHTTPClient.Timeout, outboundAPITimeout)
	}
}
