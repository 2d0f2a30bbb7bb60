package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateDownRejectsNonNumericSteps(t *testing.T) {
	root := rootCommand()
	root.Writer = io.Discard
	root.ErrWriter = io.Discard

	err := root.Run(context.Background(), []string{"visitctl", "migrate", "down", "--steps", "two"})
	assert.ErrorContains(t, err, "steps")
}

func TestReconcileRequiresTenant(t *testing.T) {
	root := rootCommand()
	root.Writer = io.Discard
	root.ErrWriter = io.Discard

	err := root.Run(context.Background(), []string{"visitctl", "reconcile", "--date", "2024-03-11"})
	assert.ErrorContains(t, err, "tenant")
}
