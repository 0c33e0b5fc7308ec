package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"LinkHub/global/config"
	"LinkHub/service/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_MemoryDefault(t *testing.T) {
	s, err := openStore(context.Background(), config.StoreConfig{Driver: config.StoreMemory})
	require.NoError(t, err)
	_, ok := s.(*storage.MemoryStore)
	assert.True(t, ok)
}

func TestOpenObjects_InProcess(t *testing.T) {
	objs, media, err := openObjects(context.Background(), config.ObjectsConfig{})
	require.NoError(t, err)
	require.NotNil(t, media)

	url, err := objs.Upload(context.Background(), "k.png", "image/png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "/media/k.png", url)
	_, ok := media.Get("k.png")
	assert.True(t, ok)
}

func TestOpenIdem_Memory(t *testing.T) {
	cfg := config.Default()
	var cl closers
	idem, err := openIdem(context.Background(), &cfg, time.Second, &cl)
	require.NoError(t, err)
	defer cl.run()

	seen, err := idem.SeenOnce(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.False(t, seen)
	seen, _ = idem.SeenOnce(context.Background(), "k", 0)
	assert.True(t, seen)
}

func TestClosers_ReverseOrder(t *testing.T) {
	var order []string
	var cl closers
	cl.add("a", func() error { order = append(order, "a"); return nil })
	cl.add("b", func() error { order = append(order, "b"); return errors.New("ignored") })
	cl.add("c", func() error { order = append(order, "c"); return nil })
	cl.run()
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, n := range []string{"gateway", "worker", "migrate", "events"} {
		assert.True(t, names[n], n)
	}
	assert.NotNil(t, migrateCmd.Flags().Lookup("down"))
}
