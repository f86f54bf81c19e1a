// Package datamodel holds the in-process data attributes of a device and
// turns their changes into log entries.
//
// Updates run under one coarse lock through Model.Update, which stages writes
// and applies them atomically. Changed attributes are appended to every log
// bound with Model.Bind whose prefixes match, stamped with the data object's
// t attribute. Payloads are protobuf Structs; see EncodePayload.
package datamodel
