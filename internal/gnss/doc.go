// Package gnss reads the raw byte stream of a GNSS receiver.
//
// Bytes are not parsed: whatever the receiver emits (NMEA, RTCM, UBX) is
// chunked and handed to the caller in arrival order. The receiver is reached
// over a USB/UART serial device or an upstream TCP port and is reopened with
// backoff whenever it goes away.
package gnss
