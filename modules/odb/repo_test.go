package odb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepoIsBare(t *testing.T) {
	_, filename, _, _ := runtime.Caller(0)
	repoPath := RevParseRepoPath(context.Background(), filepath.Dir(filename))
	fmt.Fprintf(os.Stderr, "IsBareRepository %v\n", IsBareRepository(context.Background(), repoPath))
}

func TestRepoIsBare2(t *testing.T) {
	fmt.Fprintf(os.Stderr, "IsBareRepository %v\n", IsBareRepository(context.Background(), "/tmp/batman.git"))
}

func TestNewRepo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewRepo(context.Background(), dir, "main", true, HashSHA1))
	require.True(t, IsBareRepository(context.Background(), dir))
}
