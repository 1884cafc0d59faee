// Package demux splits the microphone's serial stream into control lines and
// 24-bit sample frames.
//
// The stream starts in text mode: bytes are collected into lines and compared
// with the START command. Once it is seen the stream switches to binary mode,
// where each 4-byte group (3 big-endian data bytes and a '\n') is one sample,
// until the STOP marker arrives in place of a frame:
//
//	Mic acquisition: START\r\n
//	00 00 01 0A
//	00 00 02 0A
//	...
//	Mic acquisition: STOP\r\n
//
// Bytes that can no longer form a frame or the STOP marker are dropped up to
// and including the next '\n', which realigns the stream on frame boundaries.
package demux
