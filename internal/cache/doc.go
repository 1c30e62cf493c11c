// Package cache stores synthesized announcement audio so repeated messages
// (door chimes, "washing machine finished") skip the engine. It has an
// in-memory LRU tier (L1) and a zstd-compressed disk tier (L2) that survives
// restarts, fronted by a Manager.
package cache
