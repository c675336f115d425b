package hostlink

// Response is one decoded controller response.
// EndCode "00" means success; any other value is a controller-reported
// fault, passed through verbatim, in which case Data is empty.
type Response struct {
	UnitNo  uint8
	Header  string
	EndCode string
	Data    []uint16
}

// IsFault returns true if the controller reported an error.
func (r *Response) IsFault() bool {
	return r.EndCode != endCodeNormal
}

// Err returns an *EndCodeError for fault responses, nil otherwise.
func (r *Response) Err() (err error) {
	if r.IsFault() {
		err = &EndCodeError{
			UnitNo:  r.UnitNo,
			Header:  r.Header,
			EndCode: r.EndCode,
		}
	}

	return
}

// Turns an end code and the response text into a Response.
// Word areas carry 4 hex digits per word, bit areas one 0/1 digit per flag.
func decodeResponse(unitNo uint8, header string, endCode string, payload []byte, addressing Addressing) (res *Response, err error) {
	res = &Response{
		UnitNo:  unitNo,
		Header:  header,
		EndCode: endCode,
	}

	// faults never carry data
	if res.IsFault() {
		return
	}

	if addressing == BIT_ADDRESSING {
		res.Data, err = decodeFlags(payload)
	} else {
		res.Data, err = decodeWords(payload)
	}
	if err != nil {
		res = nil
	}

	return
}
