package value_object

// LotteryTicket is a relay's verifiable lottery entry for one selection
// epoch: the VRF output and proof over the epoch seed and the relay id.
// Anyone holding the relay's VRF public key can check it.
type LotteryTicket struct {
	Relay  RelayID
	Epoch  uint64
	Output VRFOutput
	Proof  VRFProof
}
