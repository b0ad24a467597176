package constants

const USER_AGENT = "fetchlight/0.1.0 (+https://github.com/Amund211/fetchlight)"

// Accepted by the image metadata endpoint
const MAX_URL_LENGTH = 2048
