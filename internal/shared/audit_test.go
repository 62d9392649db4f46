package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyChainDetectsTampering(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	logs := []AuditLog{
		{ActorID: 1, Action: "entry.created", Entity: "journal_entry", EntityID: "1", Meta: map[string]any{"number": 1}, At: at},
		{ActorID: 1, Action: "balance.applied", Entity: "journal_entry", EntityID: "1", Meta: map[string]any{"after": "100.00"}, At: at},
		{ActorID: 2, Action: "entry.posted", Entity: "journal_entry", EntityID: "1", At: at.Add(time.Minute)},
	}
	hashes := make([][]byte, len(logs))
	var prev []byte
	for i, log := range logs {
		h, err := ChainHash(prev, log)
		require.NoError(t, err)
		require.Len(t, h, 32)
		hashes[i] = h
		prev = h
	}

	idx, err := VerifyChain(logs, hashes)
	require.NoError(t, err)
	require.Equal(t, -1, idx)

	logs[1].Meta = map[string]any{"after": "999.00"}
	idx, err = VerifyChain(logs, hashes)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
}

func TestChainHashDependsOnPredecessor(t *testing.T) {
	log := AuditLog{ActorID: 1, Action: "entry.posted", Entity: "journal_entry", EntityID: "7", At: time.Unix(0, 0)}
	a, err := ChainHash(nil, log)
	require.NoError(t, err)
	b, err := ChainHash([]byte{1}, log)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
