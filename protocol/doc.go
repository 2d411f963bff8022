package protocol

// This package implements parsing and serialising of MRCPv2 messages, the
// protocol used to control speech resources (recognizers, synthesizers) on a
// media server.
//
// - `Request` - A client instruction to a resource, e.g. RECOGNIZE or SPEAK.
// - `Response` - The server's answer to a request. It carries a status code
//                and a request-state.
// - `Event` - An asynchronous notification about a request that is still
//             running, e.g. START-OF-INPUT or RECOGNITION-COMPLETE.
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - a message is a start-line, zero or more `Name: value` headers, a blank
//   line and optional content
// - content is UTF-8 and its size in bytes is given by `Content-Length`
//
//   ```
//   <start-line>\r\n
//   <Header-Name>: <value>\r\n
//   \r\n
//   <content>
//   ```
//
// === Start-lines
//
//   ```
//   > MRCP/2.0 <message-length> <method-name> <request-id>\r\n
//   < MRCP/2.0 <message-length> <request-id> <status-code> <request-state>\r\n
//   < MRCP/2.0 <message-length> <event-name> <request-id> <request-state>\r\n
//   ```
//
// The message-length counts every byte of the message, including the start
// line and its own digits.
//
// Responses and events both have five parts. They are told apart by the third
// part: if it parses as an integer the message is a response, otherwise it is
// an event.
//
// === Request state
//
// - `PENDING` - the request is queued behind another one
// - `IN-PROGRESS` - the request is running, events will follow
// - `COMPLETE` - the request is done, nothing else will follow
//
// A request gets at most one non-PENDING response.
//
// === Channels
//
// Every message carries a `Channel-Identifier: <session-id>@<resource-type>`
// header. Several channels share a single connection and the header is how
// messages are routed to them.
//
// === Known limitations
//
// - Multi-line (folded) header values are not supported
//
