package gateway

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// HTML renders the auto-submit page that carries the shopper's browser
// to the bank's 3D authentication endpoint. Fields are emitted in
// sorted order so the output is stable.
func (f *RedirectForm) HTML() string {
	method := f.Method
	if method == "" {
		method = "POST"
	}

	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var formFields strings.Builder
	for _, k := range keys {
		formFields.WriteString(fmt.Sprintf(`<input type="hidden" name="%s" value="%s" />`,
			html.EscapeString(k), html.EscapeString(f.Fields[k])))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<title>3D Secure Authentication</title>
	<meta charset="utf-8">
	<meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
</head>
<body onload="document.threeDForm.submit();">
	<div style="text-align: center; margin-top: 50px;">
		<p>Ödeme işleminiz 3D güvenlik sayfasına yönlendiriliyor...</p>
		<p>Payment is being redirected to 3D secure page...</p>
	</div>
	<form name="threeDForm" method="%s" action="%s">
		%s
	</form>
</body>
</html>`, method, html.EscapeString(f.URL), formFields.String())
}
