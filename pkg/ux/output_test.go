// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		assert.Contains(t, icon.Render(), string(icon))
	}
	assert.Equal(t, "→", IconArrow.Render())
}

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	assert.True(t, NewPrinter(&bytes.Buffer{}).Plain())
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestPrinter_PlainMessages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("Dependency graph")
	p.Success("imported %d endpoints", 3)
	p.Warning("skipped %s", "TRACE /debug")
	p.Error("server unreachable")
	p.Info("environment: %s", "prod")
	p.Box("Backup", "gs://bucket/catalog.bak")

	assert.Equal(t, strings.Join([]string{
		"OK: imported 3 endpoints",
		"WARN: skipped TRACE /debug",
		"ERROR: server unreachable",
		"environment: prod",
		"Backup: gs://bucket/catalog.bak",
		"",
	}, "\n"), buf.String())
}

func TestPrinter_StyledMessages(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf}

	p.Title("Dependency graph")
	p.Success("done")
	p.Info("note")

	out := buf.String()
	assert.Contains(t, out, "Dependency graph")
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "│")
	assert.NotContains(t, out, "OK:")
}

func TestPrinter_Table_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Table([]string{"SERVICE", "OWNER"}, [][]string{
		{"checkout", "payments-team"},
		{"inventory", "platform"},
	})

	assert.Equal(t, "SERVICE\tOWNER\ncheckout\tpayments-team\ninventory\tplatform\n", buf.String())
}

func TestPrinter_Table_Aligned(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf}

	p.Table([]string{"#", "SERVICE", "TYPE"}, [][]string{
		{"1", "payments", "APPLICATION"},
		{"2", "inventory-service", "LIBRARY"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	// The third column starts at the same display offset on every row.
	col := func(line, text string) int {
		i := strings.Index(line, text)
		require.GreaterOrEqual(t, i, 0, line)
		return lipgloss.Width(line[:i])
	}
	typeCol := col(lines[0], "TYPE")
	assert.Equal(t, typeCol, col(lines[1], "APPLICATION"))
	assert.Equal(t, typeCol, col(lines[2], "LIBRARY"))
}

func TestPrinter_Summary(t *testing.T) {
	var buf bytes.Buffer
	NewPlainPrinter(&buf).Summary("services", 3, "edges", 2)
	assert.Equal(t, "SUMMARY: services=3 edges=2\n", buf.String())

	buf.Reset()
	(&Printer{out: &buf}).Summary("services", 3)
	assert.Contains(t, buf.String(), "3")
	assert.Contains(t, buf.String(), "services")
}
