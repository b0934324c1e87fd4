package scanner

import "strings"

// Banner signatures mapping substrings to a service name.
// Matching is case-insensitive and the first hit wins.
var bannerSignatures = []struct {
	substr  string
	service string
}{
	{"ssh-", "ssh"}, // OpenSSH banners start with "SSH-2.0-"
	{"http/", "http"},
	{"nginx", "http"},
	{"+ok", "pop3"},
	{"* ok", "imap"},
	{"esmtp", "smtp"},
	{"postfix", "smtp"},
	{"ftp", "ftp"},
	{"mysql", "mysql"},
	{"mariadb", "mysql"},
	{"-err", "redis"},
	{"redis", "redis"},
	{"rfb ", "vnc"},
	{"amqp", "amqp"},
}

// Well-known ports used when the banner says nothing
var portServices = map[int]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	143:   "imap",
	443:   "https",
	445:   "smb",
	465:   "smtps",
	587:   "smtp",
	853:   "dns-over-tls",
	993:   "imaps",
	995:   "pop3s",
	1433:  "mssql",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	5672:  "amqp",
	5900:  "vnc",
	6379:  "redis",
	8080:  "http",
	8443:  "https",
	9200:  "elasticsearch",
	27017: "mongodb",
}

// ServiceHint guesses the service behind an open port from its banner,
// falling back to the well-known port table. Returns "" when nothing matches.
func ServiceHint(port int, banner string) string {
	if banner != "" {
		lb := strings.ToLower(banner)
		// SMTP and FTP greetings both start with a numeric code
		if strings.HasPrefix(lb, "220") {
			if strings.Contains(lb, "ftp") {
				return "ftp"
			}
			if strings.Contains(lb, "smtp") || port == 25 || port == 587 {
				return "smtp"
			}
		}
		for _, sig := range bannerSignatures {
			if strings.Contains(lb, sig.substr) {
				return sig.service
			}
		}
	}
	return portServices[port]
}
