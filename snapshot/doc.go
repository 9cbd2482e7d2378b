// Package snapshot reads and writes the binary vector snapshot format.
//
// A snapshot is two files. The vectors file starts with an 8-byte
// little-endian header (uint32 dim, uint32 count) followed by count*dim
// little-endian float32 values, row-major. The optional ids file is a JSON
// array of strings, one per row; missing or unusable ids default to
// "vector_<row>".
//
// Vectors files whose name ends in ".zst" or ".lz4" are transparently
// decompressed.
package snapshot
