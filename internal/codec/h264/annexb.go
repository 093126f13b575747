package h264

// EncodeAnnexB encodes NAL units into the Annex-B start-code stream format,
// used by the export pipeline's encoder feed.
func EncodeAnnexB(nalus [][]byte) []byte {
	var ret []byte
	for _, nalu := range nalus {
		ret = append(ret, 0x00, 0x00, 0x00, 0x01)
		ret = append(ret, nalu...)
	}
	return ret
}
