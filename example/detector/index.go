package main

// indexPage shows the annotated preview and the plates read from the
// websocket feed
const indexPage = `<!DOCTYPE html>
<html>
<head>
<title>License Plate Reader</title>
<style>
body { font-family: sans-serif; background: #222; color: #eee; }
#plates { font-size: 1.5em; margin-top: 8px; }
</style>
</head>
<body>
<img src="/stream" alt="preview">
<div id="plates">waiting for plates</div>
<div id="timing"></div>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) {
	const msg = JSON.parse(ev.data);
	if (msg.error) {
		document.getElementById("timing").textContent = "frame " + msg.seq + " error: " + msg.error;
		return;
	}
	if (msg.text) {
		document.getElementById("plates").textContent = msg.plates.map(p => p.text).join("  ");
	}
	document.getElementById("timing").textContent = "frame " + msg.seq + " " + msg.frame +
		" crop " + msg.crop + " inference " + msg.inference_ms.toFixed(1) + "ms";
};
</script>
</body>
</html>
`
