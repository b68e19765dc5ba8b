package main

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"kvdb"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := kvdb.DefaultConfig("/tmp/mini-dbdir")
	cfg.Logger = logger
	db, err := kvdb.Open(cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer db.Close()

	if err := db.Set([]byte("hello"), []byte("world")); err != nil {
		logger.Fatal("set", zap.Error(err))
	}

	v, ok, err := db.Get([]byte("hello"))
	if err != nil {
		logger.Fatal("get", zap.Error(err))
	}
	fmt.Printf("hello -> %q (found=%v)\n", v, ok)

	_, ok, err = db.Get([]byte("nonexistent"))
	if err != nil {
		logger.Fatal("get", zap.Error(err))
	}
	fmt.Printf("nonexistent found=%v\n", ok)

	removed, err := db.Remove([]byte("hello"))
	if err != nil {
		logger.Fatal("remove", zap.Error(err))
	}
	fmt.Printf("removed hello=%v\n", removed)

	_, ok, err = db.Get([]byte("hello"))
	if err != nil {
		logger.Fatal("get", zap.Error(err))
	}
	fmt.Printf("hello found after remove=%v\n", ok)

	for i := uint32(0); i < 100_000; i++ {
		var k, v [4]byte
		binary.LittleEndian.PutUint32(k[:], i)
		binary.LittleEndian.PutUint32(v[:], i*2)
		if err := db.Set(k[:], v[:]); err != nil {
			logger.Fatal("bulk set", zap.Uint32("i", i), zap.Error(err))
		}
	}

	count := 0
	if err := db.Iterate(func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		logger.Fatal("iterate", zap.Error(err))
	}
	fmt.Println(count)
}
