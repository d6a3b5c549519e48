package monitoring

// indexPage is the landing page of the monitoring server. It polls the JSON
// endpoints and renders them as plain tables.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<title>nxsim monitor</title>
<style>
body { font-family: monospace; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
td, th { border: 1px solid #999; padding: 2px 8px; text-align: right; }
th { background: #eee; }
</style>
</head>
<body>
<h1>nxsim monitor</h1>
<div>GPU ticks: <span id="ticks">-</span></div>
<h2>Syncpoints</h2>
<table id="syncpoints"><tr><th>ID</th><th>Value</th><th>Max</th></tr></table>
<h2>Queues</h2>
<table id="queues"><tr><th>Queue</th><th>Level</th><th>Cap</th></tr></table>
<h2>Displays</h2>
<table id="displays"><tr><th>ID</th><th>Name</th><th>Layers</th></tr></table>
<script>
function fill(id, rows, cols) {
	const table = document.getElementById(id);
	while (table.rows.length > 1) table.deleteRow(1);
	for (const row of rows) {
		const tr = table.insertRow();
		for (const col of cols) tr.insertCell().textContent = row[col];
	}
}
async function refresh() {
	const ticks = await (await fetch('/api/ticks')).json();
	document.getElementById('ticks').textContent = ticks.ticks;
	fill('syncpoints', await (await fetch('/api/syncpoints')).json(),
		['id', 'value', 'max']);
	fill('queues', await (await fetch('/api/queues')).json(),
		['queue', 'level', 'cap']);
	fill('displays', await (await fetch('/api/displays')).json(),
		['id', 'name', 'num_layers']);
}
refresh();
setInterval(refresh, 1000);
</script>
</body>
</html>
`
