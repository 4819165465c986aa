package signer

import "xmrhwsigner/serialize"

func canonicalWriter() *serialize.Writer { return serialize.NewWriter() }
