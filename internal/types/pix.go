package types

// PIX key types accepted by the PIX_KEY_TYPE shorthand. The set matches the
// dictionary key categories the payment rail exposes.
const (
	PixKeyQRCode        = "QRCODE"
	PixKeyQRCodeStatic  = "QRCODE_STATIC"
	PixKeyQRCodeDynamic = "QRCODE_DYNAMIC"
	PixKeyEmail         = "EMAIL"
	PixKeyPhone         = "PHONE"
	PixKeyEVP           = "EVP"
	PixKeyCPF           = "CPF"
	PixKeyCNPJ          = "CNPJ"
)

var pixKeyTypes = map[string]struct{}{
	PixKeyQRCode:        {},
	PixKeyQRCodeStatic:  {},
	PixKeyQRCodeDynamic: {},
	PixKeyEmail:         {},
	PixKeyPhone:         {},
	PixKeyEVP:           {},
	PixKeyCPF:           {},
	PixKeyCNPJ:          {},
}

// IsPixKeyType reports whether s names a known PIX key type. The check is
// case-sensitive; callers normalize to upper case first.
func IsPixKeyType(s string) bool {
	_, ok := pixKeyTypes[s]
	return ok
}
