package runnotify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupRank(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantSet    bool
		wantMaster bool
	}{
		{name: "unset", env: nil, wantSet: false, wantMaster: true},
		{name: "zero", env: map[string]string{"RANK": "0"}, wantSet: true, wantMaster: true},
		{name: "padded zero", env: map[string]string{"RANK": " 0 "}, wantSet: true, wantMaster: true},
		{name: "one", env: map[string]string{"RANK": "1"}, wantSet: true, wantMaster: false},
		{name: "empty", env: map[string]string{"RANK": ""}, wantSet: true, wantMaster: false},
		{name: "garbage", env: map[string]string{"RANK": "leader"}, wantSet: true, wantMaster: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank := lookupRank(envWith(tt.env))
			assert.Equal(t, tt.wantSet, rank.set)
			assert.Equal(t, tt.wantMaster, rank.master)
		})
	}
}

func TestLookupRankProcessEnv(t *testing.T) {
	t.Setenv(RankEnvVar, "2")

	rank := lookupRank(nil)
	assert.True(t, rank.set)
	assert.False(t, rank.master)
	assert.Equal(t, "2", rank.value)
}

func TestHostIdentifier(t *testing.T) {
	failing := func() (string, error) { return "", errors.New("no hostname") }

	assert.Equal(t, "gpu-01", hostIdentifier(fixedHost("gpu-01"), rankInfo{master: true}))
	assert.Equal(t, "gpu-01 - RANK: 3", hostIdentifier(fixedHost("gpu-01"), rankFromValue("3")))
	assert.Equal(t, "unknown", hostIdentifier(failing, rankInfo{master: true}))
	assert.Equal(t, "unknown - RANK: 0", hostIdentifier(nil, rankFromValue("0")))
}
