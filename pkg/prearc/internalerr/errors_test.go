package internalerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestFaultClassification(t *testing.T) {
	client := Client("reading object", ErrMissingIdentity)
	server := Server("writing file", errors.New("disk full"))

	if !IsClient(client) || IsServer(client) {
		t.Error("client fault misclassified")
	}
	if !IsServer(server) || IsClient(server) {
		t.Error("server fault misclassified")
	}
	if IsClient(errors.New("plain")) || IsServer(nil) {
		t.Error("unclassified error matched a fault type")
	}
}

func TestUnwrapKeepsSentinels(t *testing.T) {
	err := Client("object x.dcm", fmt.Errorf("parse: %w", ErrMissingIdentity))
	if !errors.Is(err, ErrMissingIdentity) {
		t.Error("sentinel lost through client wrapping")
	}

	err = Client("", ErrConcurrentSend)
	if err.Error() != ErrConcurrentSend.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
}
