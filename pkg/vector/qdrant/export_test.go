package qdrant

// NewDriverWithClient builds a driver over any client with the methods the
// driver calls.
var NewDriverWithClient = newDriver
