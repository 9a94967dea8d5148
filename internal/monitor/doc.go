// Package monitor republishes the last message of a chat request to a
// notification sink.
//
// The monitor runs beside the request path, never in it: Observe captures
// what it needs from the inbound request, hands the buffered body to a
// background task and returns at once. The task decodes the payload,
// extracts text and inline images from the last message, drops
// system-generated follow-up prompts and posts the rest to the sink.
// Nothing it does can change the response returned to the caller.
package monitor
