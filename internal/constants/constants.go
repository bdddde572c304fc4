package constants

const USER_AGENT = "deckcache/0.1.0 (+https://github.com/Amund211/deckcache)"
