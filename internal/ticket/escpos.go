package ticket

import "bytes"

// TitleScale is the horizontal magnification CmdSizeDouble applies to the
// title row.
const TitleScale = 2

// ESC/POS command bytes.
var (
	CmdInit        = []byte{0x1b, 0x40}
	CmdAlignLeft   = []byte{0x1b, 0x61, 0x00}
	CmdAlignCenter = []byte{0x1b, 0x61, 0x01}
	CmdBoldOn      = []byte{0x1b, 0x45, 0x01}
	CmdBoldOff     = []byte{0x1b, 0x45, 0x00}
	CmdSizeDouble  = []byte{0x1d, 0x21, 0x11}
	CmdSizeNormal  = []byte{0x1d, 0x21, 0x00}
	CmdFeed        = []byte{0x1b, 0x64, 0x04}
	CmdCut         = []byte{0x1d, 0x56, 0x00}
	CmdDrawerPulse = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}

	// CmdStatusQuery is DLE EOT 1, the real-time printer status request.
	CmdStatusQuery = []byte{0x10, 0x04, 0x01}
)

// Encode wraps a rendered document in device control codes. The title is
// printed bold, centered and double size; the cash drawer is pulsed only for
// receipts.
func Encode(doc Document, kind Kind) []byte {
	var b bytes.Buffer
	b.Write(CmdInit)

	if doc.Title != "" {
		b.Write(CmdAlignCenter)
		b.Write(CmdBoldOn)
		b.Write(CmdSizeDouble)
		b.WriteString(doc.Title)
		b.WriteByte('\n')
		b.Write(CmdSizeNormal)
		b.Write(CmdBoldOff)
	}

	b.Write(CmdAlignLeft)
	b.WriteString(doc.Body)
	b.Write(CmdFeed)
	b.Write(CmdCut)

	if kind == KindReceipt {
		b.Write(CmdDrawerPulse)
	}
	return b.Bytes()
}
