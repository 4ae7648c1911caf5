// Package bridge pumps bytes between one terminal and its owning channel.
//
// The output pump reads the terminal and coalesces bytes into batches: the
// first byte of an empty batch arms a short timer, and a batch that reaches
// the size cap is flushed immediately. A trailing partial UTF-8 sequence is
// held back until its remaining bytes arrive. Batches leave in read order.
//
// The input pump drains a bounded inbox into the terminal so a slow writer
// never blocks the channel's read loop for long.
package bridge
