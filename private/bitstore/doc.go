// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package bitstore defines the remote bit vector store consumed by bloom
// filters.
//
// Bit offsets follow redis: offset 0 is the most significant bit of the
// first byte, so raw values are interchangeable with GETRANGE/SET output.
package bitstore
