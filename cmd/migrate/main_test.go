package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args     []string
		wantName string
		wantPath string
		wantErr  string
	}{
		{args: []string{"-up"}, wantName: "up"},
		{args: []string{"-down"}, wantName: "down"},
		{args: []string{"-steps", "-1"}, wantName: "steps"},
		{args: []string{"-version", "-path", "./migrations"}, wantName: "version", wantPath: "./migrations"},
		{args: []string{"-force", "0"}, wantName: "force"},
		{args: nil, wantErr: "no action specified"},
		{args: []string{"-up", "-down"}, wantErr: "only one action"},
	}
	for _, tt := range tests {
		cmd, path, err := parseCommand(tt.args)
		if tt.wantErr != "" {
			assert.ErrorContains(t, err, tt.wantErr, "args %v", tt.args)
			continue
		}
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, tt.wantName, cmd.name)
		assert.Equal(t, tt.wantPath, path)
		assert.NotNil(t, cmd.apply)
	}
}
