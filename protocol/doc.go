// Package protocol provides an object representation of a socket.io packet,
// the packet that rides inside an Engine.IO MESSAGE.
//
// The text wire format is:
//
//	<packet type>[<# of binary attachments>-][<namespace>,][<acknowledgment id>][JSON-stringified payload without binary]
//	[<binary attachment>]
//
// or as a real example:
//
//	51-/admin,456["project:delete",{"_placeholder":true,"num":0}]
//
// Binary values found in the payload are swapped for placeholder objects on
// encode and travel as separate binary frames in declaration order. A decoded
// packet that declares attachments is not loaded until every frame has been
// added, see Decoder.
//
// MsgpackParser is an alternative Parser that keeps binary values inline.
package protocol
