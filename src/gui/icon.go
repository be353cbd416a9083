package gui

import "fyne.io/fyne/v2"

// Selection rectangle with a speaker glyph.
const iconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="1.5" y="1.5" width="13" height="9" rx="2" fill="none" stroke="#0000ff" stroke-width="1.5"/>
  <path d="M4 12.5h2l2.5 2v-5l-2.5 2H4z" fill="#333333"/>
  <path d="M10 11a2 2 0 0 1 0 3" fill="none" stroke="#333333" stroke-width="0.9" stroke-linecap="round"/>
  <path d="M11.5 10a3.5 3.5 0 0 1 0 5" fill="none" stroke="#666666" stroke-width="0.9" stroke-linecap="round"/>
</svg>`

var trayIcon = fyne.NewStaticResource("select2speak.svg", []byte(iconSVG))
