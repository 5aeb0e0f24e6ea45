//go:build !integration

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shotsense-cli/internal/media"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

func TestComputeUploadStats(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []model.UploadEntry{
		{ID: "1", AnalysisID: "A1", ShootingArm: model.ShootingArmRight, SubmittedAt: now},
		{ID: "2", AnalysisID: "", ShootingArm: model.ShootingArmLeft, SubmittedAt: now.Add(-2 * time.Hour)},
		{ID: "3", AnalysisID: "A3", ShootingArm: model.ShootingArmRight, SubmittedAt: now.Add(-48 * time.Hour)},
	}

	all := computeUploadStats(entries, time.Time{})
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.Right)
	assert.Equal(t, 1, all.Left)
	assert.Equal(t, 1, all.Inline)
	require.NotNil(t, all.First)
	require.NotNil(t, all.Last)
	assert.Equal(t, now.Add(-48*time.Hour), *all.First)
	assert.Equal(t, now, *all.Last)

	recent := computeUploadStats(entries, now.Add(-24*time.Hour))
	assert.Equal(t, 2, recent.Total)
	assert.Equal(t, 1, recent.Right)
	assert.Equal(t, 1, recent.Left)
}

func TestComputeUploadStats_Empty(t *testing.T) {
	s := computeUploadStats(nil, time.Time{})
	assert.Zero(t, s.Total)
	assert.Nil(t, s.First)
	assert.Nil(t, s.Last)
}

func TestFormatUploadStats(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	last := first.Add(3 * time.Hour)

	var buf bytes.Buffer
	formatUploadStats(&buf, uploadStats{Total: 4, Right: 3, Left: 1, Inline: 1, First: &first, Last: &last})

	out := buf.String()
	assert.Contains(t, out, "Total uploads:")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "Right arm:")
	assert.Contains(t, out, "2026-03-01 09:05")
	assert.Contains(t, out, "2026-03-01 12:05")
}

func TestFormatUploadStats_NoEntries(t *testing.T) {
	var buf bytes.Buffer
	formatUploadStats(&buf, uploadStats{})
	assert.Contains(t, buf.String(), "Total uploads:")
	assert.NotContains(t, buf.String(), "First:")
}

func TestParseAssetKinds(t *testing.T) {
	kinds, err := parseAssetKinds([]string{"original", "release"})
	require.NoError(t, err)
	assert.Equal(t, []media.AssetKind{media.AssetOriginalVideo, media.AssetReleaseFrame}, kinds)

	kinds, err = parseAssetKinds(nil)
	require.NoError(t, err)
	assert.Empty(t, kinds)

	_, err = parseAssetKinds([]string{"thumbnail"})
	assert.Error(t, err)
}

func newPasswordCmd(flag, stdin string) *cobra.Command {
	c := &cobra.Command{}
	c.Flags().String("password", "", "")
	if flag != "" {
		_ = c.Flags().Set("password", flag)
	}
	c.SetIn(strings.NewReader(stdin))
	return c
}

func TestPasswordFlag(t *testing.T) {
	pw, err := passwordFlag(newPasswordCmd("hunter2", "ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)

	pw, err = passwordFlag(newPasswordCmd("", "from-stdin\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", pw)

	pw, err = passwordFlag(newPasswordCmd("", "no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = passwordFlag(newPasswordCmd("", ""))
	assert.Error(t, err)
}

func TestCredentialError(t *testing.T) {
	var buf bytes.Buffer
	err := credentialError(&buf, "Sign in failed", &shotsense.APIError{StatusCode: 200, Message: "Invalid credentials"})
	assert.ErrorIs(t, err, errReported)
	assert.Equal(t, "Sign in failed: Invalid credentials\n", buf.String())

	buf.Reset()
	err = credentialError(&buf, "Sign in failed", errors.New("dial tcp: refused"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errReported)
	assert.Contains(t, err.Error(), "sign in failed")
	assert.Empty(t, buf.String())
}
