/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package inflate decodes raw DEFLATE (RFC 1951) and DEFLATE64 streams
// from input that arrives in chunks of any size.
//
// A Decoder never blocks. Advance consumes whatever input it is given and
// suspends when it runs out, even in the middle of a Huffman code or a
// multi-bit field, and the next Advance resumes at exactly that bit. Output
// is regrouped into pages of Config.PageSize bytes; only the final page of
// a stream may be shorter.
//
// Decode, DecodeAll and Reader wrap a Decoder for callers that hold a
// finite input and treat its early end as ErrTruncatedInput. A Decoder
// itself never decides that no more input will come.
//
// Once the final block has been decoded, UnconsumedBytes reports how many
// bytes at the end of the last chunk follow the compressed stream, so
// callers embedding a stream in a larger format can find what comes next.
//
// There is no gzip or zlib envelope handling and no checksum validation.
package inflate
