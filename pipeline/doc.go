// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pipeline provides the processor chain engine ally serves requests with.
//
// A [Processor] is a single stage which reads and writes typed fields on a
// shared set of contexts, C. Processors are composed into a named [Assembly]
// which, once created, yields a reusable [Processing]. Every execution of a
// [Processing] is driven by a [Chain] bound to a fresh set of contexts.
//
// # Contracts
//
// A processor may declare the context fields it requires, optionally reads
// and defines by implementing [Contracter]. Contracts are only checked when
// an assembly is created, never while a chain executes:
//
//	p := pipeline.Declare(pipeline.Contract{
//	    Requires: []string{"request.headers"},
//	    Defines:  []string{"request.accContentTypes"},
//	}, pipeline.Func[*rest.Exchange](decodeAccept))
//
// # Halting
//
// Each processor returns [Proceed] or [Stop]. Returning [Stop] halts the chain
// and no downstream processor runs; whatever the earlier processors wrote to
// the contexts remains visible to the caller. A halted chain may later be
// continued with [Chain.Resume].
//
// # Branching
//
// A processor may own another [Processing], possibly over a different
// contexts type, and execute it synchronously. The sub-chain's [Outcome] and
// error are returned to the owning processor as plain values.
package pipeline
